package chunker

// gearTable 是 Gear 滚动哈希的随机表 (splitmix64，种子固定)
// 改动任何一项都会改变所有切点，进而改变所有已有对象的 ID
var gearTable = [256]uint64{
	0x9a0122e95195272b, 0x7c698412aa2496e5, 0x912a3b5f424a1496, 0xaa5bba4a4e4134de,
	0xb5665ecf6bf88084, 0xb1c9691385545a52, 0x14e21954f6eaaed6, 0x35d981a4f1cc15e4,
	0xc89b488a8b2eac41, 0xa0a98777c4603bdd, 0x06312db4bbf1fbd6, 0x31cb2c179fbcef31,
	0x653bfc28470f4e22, 0x762ee75ad1393cd6, 0x6133050fc3a5033f, 0x8f562750e83fa5a0,
	0x18b153794f4d333d, 0x8c2f5b328cb6ad85, 0x267c5911920ebaba, 0x08c252560c4ef381,
	0xfc384a35553316b3, 0xceee3a7c8c1c2bf9, 0x7d48e0061aad3e18, 0x71ee7c90daf34b1b,
	0x7d24d8b9de5af1bd, 0x22e994fecf86f8e5, 0xbd85c1795dd2d5c2, 0x9c0729abad46858e,
	0xb241204dc442eda1, 0x60ed17b76b930599, 0xb9759152fbe762fb, 0x837664ed28a76f07,
	0x9ef4e201cce452bc, 0x7ba0a0735f8ec5c3, 0x8ea1ac06c6e52748, 0xba06ea5a59823f54,
	0xca88bcbe01608a43, 0x9c905d5569582adf, 0xc5c1d77a39c757bf, 0xee6d79dd656d9404,
	0xce8537a878970b42, 0xf3b854c60636f9c5, 0x7283475cb18ab001, 0x9ac98898bde9b623,
	0x89f9feaa2b01606c, 0x2d12b9a556521911, 0xfdc525be7a4a5be6, 0x07a2251459f2b4dd,
	0xd3a2be74ce15789f, 0x15754695fc27c32c, 0x38e3eb520ef48b09, 0xa0c8c395b9996b52,
	0x447994149bc88844, 0x588a63cb2bc63e4a, 0x31e7b5725b1b8c2e, 0xeed2b9429dfa8e37,
	0x70530599edadd16f, 0x397395147fa98a55, 0xe163ffcd5806dc87, 0x00f50ddc20570a55,
	0xeee4c28e66e75a02, 0x970fbd6b08026930, 0x439a9717eaf2eb71, 0x8c36f76440cb4142,
	0x70ee21460461a04b, 0xc988e5e99b68312a, 0x9cdd905df20e3ecf, 0xe6e51e6bdf7a2ded,
	0xf13a0b834efee1f2, 0x1d3336c0b8e5bd05, 0xf1c33b65b4069855, 0x6f0f7eab50f18fa2,
	0x107d3f08ca98c1eb, 0x58bd42a30ce6fc80, 0x5cd97b42b83dcb3b, 0x16e997ded56d20ce,
	0x98020194d55845ca, 0x221e71690deef637, 0xfce428d54c4b2e3a, 0xd2aca0d8bd5acf20,
	0x0c9e1e3b3e973872, 0xe3099c0910ce6fed, 0xb6310646a0558273, 0x71b54df750994b5c,
	0x4a8cda03507a4dd9, 0x68baf5d068d4a1ac, 0x406750063e7d6888, 0x4e1404d4a72aa975,
	0x930bcd1dfdf804f0, 0x2d2d627f53cebc75, 0x4057e7507b58e090, 0xe615624ce0ba4bf2,
	0x26cef0910e9dcb85, 0xa0a9bad85d341538, 0xa06ddeb73a8b8620, 0x1db37ff5300f732e,
	0xcd6e4e45cd4f74b7, 0xbb58467b289b1644, 0x467976f36f0b625d, 0xa2f3623916a14056,
	0xd58b5644f904dc0a, 0xe45540794014fec6, 0x26b65edc30a6b06c, 0x5ffe47602cdec8d2,
	0xcaff930df1f78a73, 0x17e64042ccd2a0d0, 0x7df31377b3adcfc9, 0x4ee668ea0eb85461,
	0xee2ee1fece5cfc7a, 0x52654a5796914bd2, 0xddb5f25f6974d86c, 0x13bbb64ac91b95fc,
	0x4bd5482a8e8350f7, 0x66a45a1bc2b48f41, 0x5c9c51d1361c0e3a, 0xc5d2c44dc96aaf56,
	0xbcda786c3a00297b, 0xd557e43197a7e879, 0x7e74e6445453550a, 0x660c5beff3a3c249,
	0xb43da283f2383b0d, 0x789145422030e87d, 0x824d8605c47ac0ef, 0xcbe951fcd4f3abf1,
	0xf5b0ad4ad6efa32f, 0x5513ba2f0bb93999, 0x7afb975c738fba6d, 0xc720e40bfb27561f,
	0x8803ea0654b0d910, 0x930bc10c81a9e1e4, 0xbe4bc67443ad7d6a, 0xc9737800eda2ab64,
	0xc34ea0b0e42f2a38, 0x18cef9b2f5762970, 0x0e8fa4193920e5d9, 0x4c3d3bac9e8cc9ae,
	0x69b5f99d03900eb4, 0x73d36b8564592192, 0xd737c9a22e7f4bbd, 0xfc796a039337f180,
	0x44c3ed4a018ed80d, 0x7f499b86d84fe027, 0x5ae084a8eb78370f, 0xdcd988f5fb6fd2d7,
	0x52e3d548e2bc9b8a, 0xe76ba1ff1f0eff9e, 0x3e43a84571922c4e, 0x3e34cf653bd20f62,
	0x8373990a1aa97a20, 0x32eb7df1eed53bd7, 0xfca2428a4d9ead94, 0xb952ba6e4d212ebd,
	0xdf9526a888cd5026, 0xff40a4c449a0dda5, 0xc569fe0f7ba158a7, 0xedcf67a6d6d5d1ea,
	0x77ac571b07ab6960, 0x2ab5f8c68aba7515, 0xf510d73058c93d93, 0xff32521317492cd6,
	0x1656f554be270014, 0x26d198b7e9c60910, 0xd87b25ecebefd3c7, 0xf2a25f5e85adc96d,
	0xd900d7267f8e4228, 0x6180fed9d2a77167, 0xf87b1318b2947293, 0xf96a9d6f7deba65a,
	0xabbf8b8b064a216d, 0x2d51fedb42d62dc2, 0x120ee46266a1ff0b, 0x2855f9cec9f0123b,
	0x581fa5d0c77061c0, 0x42379c203571a305, 0x17f35d5ce6d1c5ec, 0xcc2ff86b5008c3fd,
	0x9a66b04616019524, 0xea0bca7d009ec60a, 0xa67d1723dd411eca, 0x2e4371245175c91a,
	0x0c046a4b061ad562, 0x64def117dca2c924, 0x0cc5b15a6235ab24, 0x72fb0f4c3d002de3,
	0x43f07db4df47bc8c, 0xcdd539226284be1a, 0x4dfcf541c375cd7e, 0x935589a7225316ae,
	0x0c38502a5fa58027, 0x29ec055cf4788e47, 0x5f6a7bbad0638024, 0xf09056426c4bd79b,
	0x5140c3b92b81a411, 0xa8fcbb45f9a38f2a, 0x79cac9785e4bb30a, 0x1f75c8119137a829,
	0x937c89640386054f, 0xf0a12bb6c497f3c6, 0x3c01bbb6a33fd203, 0x3a4c9dd043858f44,
	0x3a84691bd2532af1, 0x691d582e0f251031, 0x6aa7ff92d2ffe037, 0xa03f77ee35defe72,
	0x924644475b0c7bb5, 0x01114b0e71fb0bb6, 0xe3e1697a40227249, 0xaa1081834747edb9,
	0x967aedad50c970c3, 0x28756321d698114e, 0x6e347afc26d7a60c, 0x9674a296663df56d,
	0x878cec17b891c94f, 0xa79e03029f21217c, 0xb3f15b11ed3d931e, 0xce0c7d370e33780a,
	0x0d5803d718f6302c, 0x4a25906c530b9668, 0x8aeaf2e587e9c0c5, 0x11240bc7b4b528fa,
	0x4eb33ed0a1df4962, 0x8da1ba0d21ab4482, 0xb628415dd219fd04, 0x983d977cdf2607ad,
	0x2f97b73ed5658999, 0x5ab4faedcbdd3e69, 0x5e1844ad8b0f253e, 0xaf5a7f397da32f38,
	0x65b5a8298b0ceb05, 0x1cc606683331d4ab, 0xae26b18fe87c0d0f, 0xb2e8f5d26490aeb3,
	0xd48495d7742781c7, 0xddd0acc844d99ae8, 0x3bd5d896a70dc314, 0xbece3d177f26e3f1,
	0x61c44630e326ddfc, 0x69711e531b336088, 0xf01a86cdf1aced91, 0x03b2f4f7d4e18bb3,
	0x66f23eab264ea95f, 0xb61649603b1fd725, 0x9a7821b63e73417c, 0x59d88a986950f090,
	0xdc698fe6a40db123, 0x0364c65aeaefd13f, 0x68acaa2003d7141c, 0x1a219a9c240c71f6,
	0xe960d0df2b2f857b, 0x6d89709a866740b4, 0x995e8d5576c96b93, 0x884ebc37f60bed42,
	0x0a9995427b5db965, 0x84c81c6ea971b61c, 0x9060c7844821dc33, 0xd924c8a46275b853,
}
